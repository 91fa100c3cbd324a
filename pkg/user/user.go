package user

// User is the acting identity of a request. Identity is owned by an external
// directory; this service only stamps Uid on audit fields.
type User struct {
	Uid         string
	DisplayName string
}
