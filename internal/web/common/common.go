package common

// BasicResponse carries Status 0 on success and -1 on failure.
type BasicResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

func (r *BasicResponse) Fail(err error) {
	r.Status = -1
	r.Message = err.Error()
}
