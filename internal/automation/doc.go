// Package automation runs the compiled-in curtain and projector scenes
// and arbitrates who may trigger them.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                 Arbiter (arbiter.go)                   │
//	│  Keypad / Web UI  ──▶ force Manual, audit, FIFO queue  │
//	│  AI label         ──▶ dedup vs lastSceneId, run sync   │
//	│        │                                               │
//	│        ▼                                               │
//	│  ┌──────────────────────────────────────────────┐     │
//	│  │  Engine (engine.go)                           │     │
//	│  │  1. Look up scene (registry.go, closed set)   │     │
//	│  │  2. Take the single-flight gate               │     │
//	│  │  3. Run actions strictly in order             │     │
//	│  │  4. Update state, lastSceneId                 │     │
//	│  │  5. Publish MQTT event, broadcast WebSocket   │     │
//	│  └──────────────────────────────────────────────┘     │
//	└───────────────────────────────────────────────────────┘
//
// # Gate policy
//
// Only one scene executes at a time. Operator triggers, including direct
// projector power and HDMI switches, join one queue and run in the order
// they arrived. AI triggers never queue: they fail with ErrSceneBusy while
// a scene runs or operator triggers are pending, and are retried on the
// next AutoControl tick.
//
// # Thread Safety
//
// Engine and Arbiter are safe for concurrent use from multiple goroutines.
//
// # Usage
//
//	engine := automation.NewEngine(automation.Deps{
//	    Curtains:  map[automation.Backend]device.CurtainActuator{...},
//	    Projector: projector,
//	    State:     store,
//	})
//	arbiter := automation.NewArbiter(engine, store, recorder)
//	err := arbiter.Manual(ctx, automation.SceneSet50, audit.SourceWeb, ip)
package automation
