// Package sftp pushes content trees to an origin host over SFTP.
//
// The backend implements content.StorageBackend for environments whose
// deployed tree lives on a host reached over SSH rather than in an
// object store. Listing returns content hashes: a single remote
// checksum command covers the whole tree when the deploy user has shell
// access, and restricted sftp-only accounts fall back to streaming each
// file through sha256 over the connection. Uploads land under a
// dot-prefixed temporary name and are renamed into place, so the web
// server never serves a half-written file.
//
// SFTP carries no per-object serving metadata. Content-Type and cache
// headers come from the origin web server's extension mapping, so Put
// stores plain files and ignores the classification beyond logging it.
//
// Passwords and key passphrases left out of the config are looked up in
// the operating system keyring under the "sundae" service.
package sftp
