// Package tapwatch provides the public API for embedding the tapwatch
// network interface monitor.
//
// # Basic Usage
//
//	w, err := tapwatch.New("/etc/tapwatch.conf", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
//
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//
//	if v, ok := w.Latest(); ok && v.HasRate() {
//		rx, tx := v.Rates()
//		fmt.Printf("%s rx %d bit/s tx %d bit/s\n", v.Interface, rx, tx)
//	}
//
// # Configuration
//
// The file may be written as legacy directives, as a Lua script assigning
// tapwatch.config, or as YAML; an empty path runs on defaults. TAPWATCH_*
// environment variables override file values. With Options.WatchConfig
// the file is watched and reloaded in place: a new interface name takes
// effect on the next poll, new intervals restart the loop. Shell settings
// take effect on Restart.
//
// # Consuming Views
//
// Every poll produces a monitor.View. Latest returns the most recent one;
// Options.Sinks receive each one synchronously from the poll loop.
package tapwatch
