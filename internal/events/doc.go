// Package events provides the append-only session log.
//
// A Bus accepts events from any goroutine and appends them through a single
// queue goroutine, so the history order is the emission order. Subscribers
// replay the history and then follow new events; each subscription buffers
// independently, so a slow reader never stalls the pipeline.
//
//	bus := events.NewBus()
//	defer bus.Close()
//
//	sub := bus.Subscribe()
//	go func() {
//	    for e := range sub.C() {
//	        fmt.Println(e)
//	    }
//	}()
//
//	bus.Log("mount", "mounted src/index.js")
package events
