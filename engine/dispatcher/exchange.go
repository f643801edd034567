package dispatcher

import (
	"sync/atomic"

	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/response"
	"github.com/compozy/relay/engine/user"
)

// Exchange is the per request state shared by every container of one
// dispatch: the global request, the acting user and the execution count.
type Exchange struct {
	Request *request.Request
	User    *user.User

	data       *request.DataHolder
	executions atomic.Int32
	response   *response.Response
}

// NewExchange creates an exchange. A nil user is replaced by an anonymous
// one.
func NewExchange(req *request.Request, u *user.User) *Exchange {
	if u == nil {
		u = user.New("")
	}
	return &Exchange{Request: req, User: u, data: req.Data()}
}

// Executions returns how many containers ran so far.
func (e *Exchange) Executions() int {
	return int(e.executions.Load())
}

// Response returns the final response of the dispatch.
func (e *Exchange) Response() *response.Response {
	return e.response
}

// SetResponse replaces the final response; global filters may use it to
// answer without running any controller.
func (e *Exchange) SetResponse(r *response.Response) {
	e.response = r
}

func (e *Exchange) countExecution(limit int) error {
	n := int(e.executions.Add(1))
	if limit > 0 && n > limit {
		return errTooManyExecutions(limit)
	}
	return nil
}
