// Package memory holds in-process implementations of the live collaborators. They back
// STORE_BACKEND=memory and the package tests.
package memory

import "sync"

// faults lets a test make a named operation fail until cleared.
type faults struct {
	fmu  sync.Mutex
	errs map[string]error
}

// Fail makes op return err on every call. A nil err clears the fault.
func (f *faults) Fail(op string, err error) {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *faults) err(op string) error {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	return f.errs[op]
}
