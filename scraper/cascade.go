package scraper

import (
	"context"
	"log"
)

// Cascade tries the remote delegate first and falls back to a direct
// fetch when the delegate is unreachable or returns no verdict. A dead
// delegate never fails a check on its own.
type Cascade struct {
	Remote *RemoteChecker
	Direct *DirectChecker
}

func (c *Cascade) Check(ctx context.Context, target Target) (*Outcome, error) {
	out, err := c.Remote.Check(ctx, target)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Printf("Delegate: %v, falling back to direct fetch for %s", err, target.URL)
	return c.Direct.Check(ctx, target)
}
