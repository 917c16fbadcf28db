package aggregates

// Contract lists what an aggregate changes inside its own transaction.
type Contract struct {
	Name   string
	Tables []string
	// Lock names a lock the caller must hold around the write, if any.
	Lock  string
	Notes string
}

// Aggregate is implemented by every write boundary.
type Aggregate interface {
	Contract() Contract
}

// Writes reports whether the aggregate changes table.
func (c Contract) Writes(table string) bool {
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}
