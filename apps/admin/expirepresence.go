package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) expirePresence(ttl time.Duration) error {
	sessions, err := cli.tracker.ExpireOlderThan(context.Background(), ttl)
	if err != nil {
		return err
	}
	fmt.Printf("%d session(s) marked offline\n", len(sessions))
	return nil
}
