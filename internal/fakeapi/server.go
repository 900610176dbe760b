// Package fakeapi serves a local GraphQL endpoint with the same contract
// as the remote to-do service. It keeps records in memory, checks the API
// key, and can be told to fail individual operations.
package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/calvinalkan/todo-sync/internal/todo"
)

// Path is where the GraphQL endpoint is mounted.
const Path = "/graphql"

// Operation names accepted by [Server.Fail] and [Server.Calls].
const (
	OpList   = "listTodos"
	OpCreate = "createTodo"
	OpUpdate = "updateTodo"
	OpDelete = "deleteTodo"
)

// Options configures [New].
type Options struct {
	// APIKey is required in the x-api-key header. Empty disables the check.
	APIKey string

	// NewID assigns ids on create. Defaults to random UUIDs.
	NewID func() string

	Logger *zap.Logger
}

// Server is an in-memory to-do GraphQL service.
type Server struct {
	apiKey string
	newID  func() string
	log    *zap.Logger
	schema graphql.Schema

	mu     sync.Mutex
	todos  []todo.Record
	faults map[string]error
	calls  map[string]int
}

// New builds a server with an empty list.
func New(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	s := &Server{
		apiKey: opts.APIKey,
		newID:  newID,
		log:    log,
		faults: make(map[string]error),
		calls:  make(map[string]int),
	}

	schema, err := s.buildSchema()
	if err != nil {
		return nil, err
	}

	s.schema = schema

	return s, nil
}

// Handler routes [Path] to the GraphQL endpoint and logs every request.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(Path, s.serveGraphQL).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	r.Use(s.logRequests)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Duration("took", m.Duration),
		)
	})
}

type requestBody struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

func (s *Server) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)

		return
	}

	var body requestBody

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)

		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  body.Query,
		VariableValues: body.Variables,
		OperationName:  body.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")

	err = json.NewEncoder(w).Encode(result)
	if err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

// Seed appends records as if created earlier. Records without an id get one.
func (s *Server) Seed(records ...todo.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.ID == "" {
			r.ID = s.newID()
		}

		s.todos = append(s.todos, r)
	}
}

// Todos returns a copy of the stored list.
func (s *Server) Todos() []todo.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.todos)
}

// Fail makes every later call of op fail with msg until [Server.Recover].
func (s *Server) Fail(op, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[op] = errors.New(msg)
}

// Recover clears a fault set by [Server.Fail].
func (s *Server) Recover(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.faults, op)
}

// Calls returns how many times op was invoked, failed calls included.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[op]
}

// begin counts a call and returns the injected fault, if any. Caller holds mu.
func (s *Server) begin(op string) error {
	s.calls[op]++

	return s.faults[op]
}

func (s *Server) list() ([]todo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.begin(OpList)
	if err != nil {
		return nil, err
	}

	return slices.Clone(s.todos), nil
}

func (s *Server) create(in todo.CreateInput) (todo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.begin(OpCreate)
	if err != nil {
		return todo.Record{}, err
	}

	r := todo.Record{ID: s.newID(), Name: in.Name, When: in.When, Where: in.Where, Description: in.Description}
	s.todos = append(s.todos, r)

	return r, nil
}

// update replaces the fields present in in.
func (s *Server) update(in map[string]any) (todo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.begin(OpUpdate)
	if err != nil {
		return todo.Record{}, err
	}

	id := str(in, "id")

	i := s.index(id)
	if i < 0 {
		return todo.Record{}, fmt.Errorf("todo %s not found", id)
	}

	r := &s.todos[i]

	if v, ok := in["name"].(string); ok {
		r.Name = v
	}

	if v, ok := in["when"].(string); ok {
		r.When = v
	}

	if v, ok := in["where"].(string); ok {
		r.Where = v
	}

	if v, ok := in["description"].(string); ok {
		r.Description = v
	}

	return *r, nil
}

func (s *Server) delete(id string) (todo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.begin(OpDelete)
	if err != nil {
		return todo.Record{}, err
	}

	i := s.index(id)
	if i < 0 {
		return todo.Record{}, fmt.Errorf("todo %s not found", id)
	}

	r := s.todos[i]
	s.todos = slices.Delete(s.todos, i, i+1)

	return r, nil
}

func (s *Server) index(id string) int {
	return slices.IndexFunc(s.todos, func(r todo.Record) bool { return r.ID == id })
}
