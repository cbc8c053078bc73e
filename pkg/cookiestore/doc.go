// Package cookiestore persists the session cookie jar between runs.
//
// Backends:
//   - FileStore: JSON snapshot {version, saved_at, cookies}, written atomically
//   - EncryptedFileStore: the same snapshot sealed with AES-GCM, key from PBKDF2
//   - KeyringStore: the snapshot kept in the system keychain
//   - EnvironmentStore: read only seed from DYSCRAPER_COOKIES
//   - MemoryStore: in process, with error injection for tests
//
// Chain combines them with first-hit semantics. A missing snapshot is never
// an error; Load returns nil cookies.
package cookiestore
