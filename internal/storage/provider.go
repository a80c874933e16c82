package storage

import "manimd/internal/ports"

// Provider is the artifact mirror contract used across the dispatcher and
// the sweeper. Alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
