package helpers

import (
	"context"
	"os"
	"os/signal"

	"github.com/ac-xchange/uabridge/log2"
	"github.com/temoto/alive/v2"
)

// AliveContext is cancelled when a is stopped or parent is done.
func AliveContext(parent context.Context, a *alive.Alive) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-a.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// StopOnSignal stops a on first signal. Second signal before a finished exits process.
func StopOnSignal(a *alive.Alive, log *log2.Log, sigs ...os.Signal) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		select {
		case s := <-ch:
			log.Infof("signal=%v stopping", s)
			a.Stop()
		case <-a.WaitChan():
			return
		}
		select {
		case s := <-ch:
			log.Errorf("signal=%v while stopping, exit", s)
			os.Exit(1)
		case <-a.WaitChan():
		}
	}()
}
