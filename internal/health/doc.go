// Package health provides dev server reachability checks.
//
// # Port Checks
//
// A dev server is considered up once its port accepts TCP connections:
//
//	health.CheckPort("127.0.0.1", 3000)       // single probe
//	health.PortStatus("127.0.0.1", 3000)      // StatusUp or StatusDown
//	health.WaitForPort(ctx, "127.0.0.1", 3000, time.Second)
//
// Each probe gives up after DialTimeout.
//
// # Uptime
//
// Uptime formats the age of a session for status lines ("42s", "3m",
// "1h 5m", "2d 4h").
package health
