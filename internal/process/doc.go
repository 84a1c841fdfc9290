// Package process supervises a child process on behalf of hapticd.
//
// When hub.managed is set, hapticd launches the device hub server itself
// instead of expecting it to run externally. The Manager:
//   - starts the binary in its own process group
//   - logs its stdout/stderr line by line at debug level
//   - restarts it with exponential backoff, resetting the attempt counter
//     once a run has stayed up past StableThreshold
//   - kills it after repeated health check failures
//   - stops it with SIGTERM, escalating to SIGKILL after GracefulTimeout
//
// Example usage:
//
//	mgr := process.NewManager(process.HubConfig(cfg.Hub))
//	mgr.SetLogger(log)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
