package document

// IsModified reports whether the document has any bytes not stamped
// with the current savepoint, i.e. whether Save would have anything to
// do (spec §4.4).
func (doc *Document) IsModified() bool {
	return doc.IsRangeModified(0, doc.Length())
}

// IsRangeModified reports whether any byte in [offset, offset+length)
// was changed since the last Save.
func (doc *Document) IsRangeModified(offset, length uint64) bool {
	var out bool

	_ = doc.lock.WithRLock(func() error {
		out = doc.chain.RangeModified(offset, length, doc.savepoint)
		return nil
	})

	return out
}
