package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/web/common"
)

const maxBody = 1 << 16

// Dispatcher maps /func/{name} calls to registered functions of the form
// func(ctx, *Req, *Res) error or func(ctx, *Res) error.
type Dispatcher struct {
	funcs     map[string]_function
	validator *validator.Validate
	log       log.Logger
}

type _function struct {
	reqType reflect.Type
	resType reflect.Type
	handler reflect.Value
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	d.funcs = make(map[string]_function)
	d.validator = validator.New()
	d.log = log.DefaultLogger
	d.log.Context = log.NewContext(nil).Str("module", "dispatcher").Value()
	return d
}

// Add registers f under funcname. It panics when f has the wrong shape.
func (disp *Dispatcher) Add(funcname string, f interface{}) {
	s := _function{}
	s.handler = reflect.ValueOf(f)
	t := s.handler.Type()
	if t.Kind() != reflect.Func || t.NumOut() != 1 || t.Out(0) != errType || t.NumIn() < 2 || t.NumIn() > 3 || t.In(0) != ctxType {
		panic(fmt.Sprintf("function %s has an unsupported signature %s", funcname, t))
	}
	if t.NumIn() == 2 {
		s.reqType = nil
		s.resType = t.In(1).Elem()
	} else {
		s.reqType = t.In(1).Elem()
		s.resType = t.In(2).Elem()
	}
	disp.funcs[funcname] = s
}

func (disp *Dispatcher) Call(funcname string, w http.ResponseWriter, r *http.Request) {
	_func, ok := disp.funcs[funcname]
	if !ok {
		http.Error(w, fmt.Sprintf("function \"%s\" not found", funcname), http.StatusNotFound)
		return
	}
	disp.call(funcname, _func, r, w)
}

func (disp *Dispatcher) call(funcname string, _func _function, r *http.Request, w http.ResponseWriter) {
	var err_ref []reflect.Value
	response := reflect.New(_func.resType)
	if _func.reqType != nil {
		request := reflect.New(_func.reqType)
		err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(request.Interface())
		if err != nil && err != io.EOF {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = disp.validator.Struct(request.Interface())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err_ref = _func.handler.Call([]reflect.Value{reflect.ValueOf(r.Context()), request, response})
	} else {
		err_ref = _func.handler.Call([]reflect.Value{reflect.ValueOf(r.Context()), response})
	}
	if !err_ref[0].IsNil() {
		err := err_ref[0].Interface().(error)
		disp.log.Error().Err(err).Str("func", funcname).Msg("function failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(common.BasicResponse{Status: -1, Message: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response.Interface()); err != nil {
		disp.log.Error().Err(err).Str("func", funcname).Msg("")
	}
}
