package storage

import "github.com/ParentSquare/faulty"

// AutoWire turns user-supplied backends into a hardened Storage (spec
// §4.2.6): no backends → MemoryStorage; one fault-tolerant backend →
// unchanged; one non-tolerant backend → CircuitProxy nested in a
// FaultTolerantProxy; more than one → a FallbackChain of individually
// circuit-proxied non-tolerant elements, the whole chain nested in a
// FaultTolerantProxy. notifier may be nil.
func AutoWire(opts *faulty.Options, notifier faulty.Notifier, backends ...faulty.Storage) (faulty.Storage, error) {
	backends = nonNilStorage(backends)

	switch len(backends) {
	case 0:
		return NewMemoryStorage(), nil
	case 1:
		return hardenOne(backends[0], opts, notifier)
	default:
		wired := make([]faulty.Storage, len(backends))
		for i, b := range backends {
			if b.FaultTolerant() {
				wired[i] = b
				continue
			}
			proxy, err := NewCircuitProxy(b, opts, notifier)
			if err != nil {
				return nil, err
			}
			wired[i] = proxy
		}
		chain := NewFallbackChain(wired...)
		return NewFaultTolerantProxy(chain, notifyFunc(notifier)), nil
	}
}

func hardenOne(b faulty.Storage, opts *faulty.Options, notifier faulty.Notifier) (faulty.Storage, error) {
	if b.FaultTolerant() {
		return b, nil
	}
	proxy, err := NewCircuitProxy(b, opts, notifier)
	if err != nil {
		return nil, err
	}
	return NewFaultTolerantProxy(proxy, notifyFunc(notifier)), nil
}

func notifyFunc(notifier faulty.Notifier) func(string, map[string]interface{}) {
	if notifier == nil {
		return nil
	}
	return notifier.Notify
}

func nonNilStorage(backends []faulty.Storage) []faulty.Storage {
	out := make([]faulty.Storage, 0, len(backends))
	for _, b := range backends {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}
