package registry

// Request DTOs

// StoreMessageRequest contains parameters for registering a content reference.
//
// Caller is the authorized identity performing the registration; Sender is
// the submitter recorded as the message's origin. They are often the same
// address, but an authorized caller may register on a submitter's behalf.
type StoreMessageRequest struct {
	Caller      string
	Sender      string
	ContentRef  string
	MessageType string
	Payment     int64
}

// RetrieveMessageRequest contains parameters for reading a content reference
type RetrieveMessageRequest struct {
	ID        int64
	Requester string
}

// RemoveMessageRequest contains parameters for deleting a message
type RemoveMessageRequest struct {
	ID     int64
	Caller string
}

// AccessRequest contains parameters for granting or revoking access
type AccessRequest struct {
	ID      int64
	Grantee string
	Caller  string
}

// ListBySubmitterRequest contains parameters for listing a submitter's
// message ids. Offset and Limit are clipped to the list's actual length;
// out-of-range values yield an empty result, never an error.
type ListBySubmitterRequest struct {
	Submitter string
	Offset    int
	Limit     int
}

// SetQuotaRequest contains parameters for overriding a submitter's quota
type SetQuotaRequest struct {
	Caller   string
	User     string
	NewQuota int64
}
