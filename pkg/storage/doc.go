// Package storage lays out downloaded videos on disk.
//
// Each account gets a directory under the output root named after its
// display name, or its id when the name is unknown. Each item becomes one
// file named "{title}_{id}.{ext}": the title is cut to a fixed number of
// runes and characters that are illegal in filenames are replaced with "_".
// The id suffix keeps names unique when titles collide.
//
// File presence is the idempotence signal, so writers must only ever rename
// complete files into place. A run claims an account directory with Lock
// so two runs never race on the same files.
//
//	m, err := storage.NewManager(cfg.Output, cfg.Download)
//	dir, err := m.AccountDir(account)
//	lock, err := m.Lock(dir, runID)
//	defer lock.Release()
//	if !m.Exists(m.PathFor(dir, item)) {
//		// download
//	}
package storage
