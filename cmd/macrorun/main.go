// Command macrorun parses a single macro expression, binds it to a
// simulated trigger key, and prints the synthetic input events it injects.
// It stands in for the evdev read loop and virtual-device writer that a
// real injector would supply as the engine's handler and notification
// sources.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	macroengine "github.com/inputremap/macroengine"
)

func main() {
	var (
		source     = flag.String("macro", `k(KEY_A).w(50).k(KEY_B)`, "macro expression to run")
		pressAfter = flag.Duration("press", 0, "simulate a trigger press after this delay")
		holdFor    = flag.Duration("hold", 0, "simulate the trigger being held this long before release")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger := macroengine.NewLogger(*debug)
	config := macroengine.DefaultConfig()
	config.Debug = *debug
	store := macroengine.NewVariableStore()
	mapping := macroengine.DefaultSystemMapping()

	macro, err := macroengine.Parse(*source, store, mapping, config, logger)
	if err != nil {
		log.Fatalf("parse error: %v", err)
	}

	handler := func(ctx context.Context, typ macroengine.EventType, code int, value int32) error {
		fmt.Printf("%s  (type=%d code=%d value=%d)\n", time.Now().Format("15:04:05.000"), typ, code, value)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *pressAfter > 0 {
		go func() {
			time.Sleep(*pressAfter)
			macro.PressTrigger()
			if *holdFor > 0 {
				time.Sleep(*holdFor)
				macro.ReleaseTrigger()
			}
		}()
	} else {
		macro.PressTrigger()
		macro.ReleaseTrigger()
	}

	inv := macroengine.Spawn(ctx, macro, handler)
	if err := inv.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(os.Stderr, "macro run ended with error: %v\n", err)
		os.Exit(1)
	}
}
