// Package watcher reports changes to a simulator device root.
//
// Installing, reinstalling or removing an application renames its bundle and
// data containers, and creating or erasing a simulator adds or removes a
// device directory. The Watcher observes exactly those directories with
// fsnotify, debounces bursts of events, and hands each batch to a handler
// that typically re-runs discovery and re-binds cached paths.
//
// Example usage:
//
//	w, err := watcher.New(root, func(changes []watcher.Change) {
//		for _, c := range changes {
//			fmt.Println(c.Op, c.DeviceID, c.Path)
//		}
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
