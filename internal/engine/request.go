package engine

import (
	"context"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

// Op identifies a directory operation.
type Op int

const (
	OpAdd Op = iota
	OpDelete
	OpModify
	OpModRdn
	OpSearch
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpModify:
		return "modify"
	case OpModRdn:
		return "modrdn"
	case OpSearch:
		return "search"
	default:
		return "unknown"
	}
}

// Request is one directory operation. The set of requests is closed: it
// holds exactly the request types of this package.
type Request interface {
	Op() Op
	TargetDN() string
	request()
}

// AddRequest creates Entry.
type AddRequest struct {
	Entry *directory.Entry
}

// DeleteRequest removes the leaf entry DN.
type DeleteRequest struct {
	DN string
}

// ModifyRequest applies Changes to the entry DN.
type ModifyRequest struct {
	DN      string
	Changes []directory.Modification
}

// ModRdnRequest renames the entry DN to NewRDN under the same parent.
type ModRdnRequest struct {
	DN           string
	NewRDN       data.Row
	DeleteOldRDN bool
}

// SearchRequest reads the entries within Scope of BaseDN matching Filter.
// A nil Filter matches every entry. Attributes limits the returned
// attributes; SizeLimit bounds the number of entries when positive.
type SearchRequest struct {
	BaseDN     string
	Scope      directory.Scope
	Filter     *filter.Filter
	Attributes []string
	SizeLimit  int
}

func (r *AddRequest) Op() Op { return OpAdd }
func (r *DeleteRequest) Op() Op { return OpDelete }
func (r *ModifyRequest) Op() Op { return OpModify }
func (r *ModRdnRequest) Op() Op { return OpModRdn }
func (r *SearchRequest) Op() Op { return OpSearch }
func (r *AddRequest) request() {}
func (r *DeleteRequest) request() {}
func (r *ModifyRequest) request() {}
func (r *ModRdnRequest) request() {}
func (r *SearchRequest) request() {}
func (r *DeleteRequest) TargetDN() string { return r.DN }
func (r *ModifyRequest) TargetDN() string { return r.DN }
func (r *ModRdnRequest) TargetDN() string { return r.DN }
func (r *SearchRequest) TargetDN() string { return r.BaseDN }

func (r *AddRequest) TargetDN() string {
	if r.Entry == nil {
		return ""
	}
	return r.Entry.DN
}

// Response is the outcome of Execute. Results is set for searches and
// must be drained or closed by the caller.
type Response struct {
	Op      Op
	DN      string
	Code    result.Code
	Err     error
	Results *Results
}

// Execute dispatches req to its operation.
func (e *Engine) Execute(ctx context.Context, req Request) *Response {
	resp := &Response{Op: req.Op(), DN: req.TargetDN()}
	var err error
	switch r := req.(type) {
	case *AddRequest:
		err = e.Add(ctx, r)
	case *DeleteRequest:
		err = e.Delete(ctx, r)
	case *ModifyRequest:
		err = e.Modify(ctx, r)
	case *ModRdnRequest:
		err = e.ModRdn(ctx, r)
	case *SearchRequest:
		resp.Results, err = e.Search(ctx, r)
	}
	resp.Err = err
	resp.Code = result.CodeOf(err)
	return resp
}
