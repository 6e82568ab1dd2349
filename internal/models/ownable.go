package models

// Ownable is implemented by every record whose owner matters to object-level
// authorization. The bool is false when the record has no owner.
type Ownable interface {
	OwnerID() (string, bool)
}
