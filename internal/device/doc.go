// Package device provides the device registry for Gatekeeper Core.
//
// The registry is the authoritative catalogue of ANPR cameras and vehicle
// gates at a site. It owns device identity and configuration; the status
// probe and the gate actuator own the observed fields (camera status, gate
// status, online flag, last action) and write them only through the
// dedicated mutators SetCameraStatus, ObserveGate and RecordGateAction.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │    │    Repository    │    │    Validation    │
//	│   (registry.go)  │───▶│  (repository.go) │    │ (validation.go)  │
//	│                  │    │                  │    │                  │
//	│ • CRUD ops       │    │ • SQLite queries │    │ • Required fields│
//	│ • In-memory cache│    │ • FK / UNIQUE    │    │ • IP / port      │
//	│ • Keyed locks    │    │   backstops      │    │ • ID generation  │
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//
// # Invariants
//
//   - A gate's status is always open, closed or unknown.
//   - A gate's camera_id names an existing camera at the time of the write.
//   - Camera passwords never appear in JSON.
//   - Readers see an entity either wholly before or wholly after a change.
//
// # Usage
//
//	reg := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	gate := &device.Gate{Name: "Main Barrier", Location: "North entrance"}
//	if err := reg.AddGate(ctx, gate); err != nil {
//	    return err
//	}
package device
