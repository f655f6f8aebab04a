// Package process supervises commands running inside a sandbox instance.
//
// A Supervisor spawns commands through runtime.Instance, forwards their
// output to the session event bus tagged by command, and publishes a
// process-exit event with the exit code when they finish.
//
// # Pipeline Commands
//
// The preview pipeline uses three commands, all configurable:
//   - Verify: lists the mounted project root (ls -la); failure is only logged
//   - Install: installs dependencies (npm install); a non-zero exit is a
//     warning and the pipeline continues
//   - StartDevServer: starts the development server; it is not awaited and
//     readiness is reported by the runtime
//
// # Interactive Shell
//
// OpenShell starts the configured shell on a terminal. Its output is written
// straight to the caller's terminal writer, not to the event bus:
//
//	sh, err := sup.OpenShell(ctx, runtime.TerminalSize{Cols: 80, Rows: 24}, os.Stdout)
//	if err != nil {
//	    return err
//	}
//	defer sh.Close()
//	sh.RunCommand("npm install")
package process
