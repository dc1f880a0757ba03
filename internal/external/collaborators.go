package external

// Storage is the storage/cache subsystem lifecycle the handshake brings up
// once the address table has been received (SPEC_FULL.md §4.3).
type Storage interface {
	InitStorage(backendType, cacheType uint32) error
	CloseStorage() error
}

// NoStorage is a no-op Storage for tests and single-process runs.
type NoStorage struct{}

func (NoStorage) InitStorage(uint32, uint32) error { return nil }
func (NoStorage) CloseStorage() error              { return nil }

// DataSockets is the data-socket mesh used for object reads/writes,
// initialized by the handshake and torn down at shutdown.
type DataSockets interface {
	InitDataConnections(hosts []string, ports []int, nodeID uint32) error
	WaitReady() error
	Close() error
}

// NoDataSockets is a no-op DataSockets for tests and single-process runs.
type NoDataSockets struct{}

func (NoDataSockets) InitDataConnections([]string, []int, uint32) error { return nil }
func (NoDataSockets) WaitReady() error                                  { return nil }
func (NoDataSockets) Close() error                                      { return nil }

// ThreadPool hosts the goroutines spawned to run newly created remote
// threads; Submit is fire-and-forget, matching CreateThread's semantics.
type ThreadPool interface {
	Submit(fn func())
	Shutdown()
}

// GoThreadPool runs each submission on its own goroutine. It's the
// idiomatic Go stand-in for the thread pool named as an external
// collaborator: unlike a real OS-thread pool there is no scarce resource
// to bound, so Submit never blocks.
type GoThreadPool struct{}

func (GoThreadPool) Submit(fn func()) { go fn() }
func (GoThreadPool) Shutdown()        {}

// ThreadEntry is the user-visible callback invoked for a CreateThread
// without an inline payload.
type ThreadEntry func(param, param2 uint32, param3 uint64)

// ObjectThreadEntry is the user-visible callback invoked for a
// CreateThread carrying an inline payload; buf ownership transfers to the
// callback.
type ObjectThreadEntry func(param, param2 uint32, param3 uint64, buf []byte)
