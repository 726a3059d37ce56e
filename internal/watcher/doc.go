// Package watcher keeps long-running sessions current.
//
// InventoryWatcher polls the device inventory on an interval and reports
// packages that appeared or disappeared between polls. Snapshots are
// always replaced wholesale; the diff is only used for display.
//
// TokenFile follows a file holding the session token and reloads it when
// the file is rewritten, so a session that outlives a LuCI login keeps
// working after the token is refreshed on disk.
//
// Example usage:
//
//	tf, err := watcher.OpenTokenFile("/run/luci/token")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tf.Close()
//
//	w, err := watcher.New(fetcher, func() luci.RequestContext {
//		return cfg.RequestContext(tf.Token())
//	}, 30*time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//	w.OnChange(func(c watcher.Change) { fmt.Print(output.RenderChange(p, c.Added, c.Removed)) })
//
//	if err := w.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
