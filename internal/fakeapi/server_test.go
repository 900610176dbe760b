package fakeapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/todo-sync/internal/fakeapi"
	"github.com/calvinalkan/todo-sync/internal/todo"
)

func post(t *testing.T, h http.Handler, key string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, fakeapi.Path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	if key != "" {
		req.Header.Set("x-api-key", key)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) gqlResponse {
	t.Helper()

	var resp gqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp
}

func Test_Handler_Rejects_Request_When_API_Key_Missing(t *testing.T) {
	t.Parallel()

	api, err := fakeapi.New(fakeapi.Options{APIKey: "k"})
	require.NoError(t, err)

	rec := post(t, api.Handler(), "", map[string]any{"query": "{ listTodos { items { id } } }"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, api.Calls(fakeapi.OpList))
}

func Test_Handler_Creates_And_Lists_When_Mutations_Posted(t *testing.T) {
	t.Parallel()

	api, err := fakeapi.New(fakeapi.Options{APIKey: "k", NewID: func() string { return "abc123" }})
	require.NoError(t, err)

	h := api.Handler()

	rec := post(t, h, "k", map[string]any{
		"query": `mutation createTodo($createtodoinput: CreateTodoInput!) {
			createTodo(input: $createtodoinput) { id name when where description }
		}`,
		"variables": map[string]any{
			"createtodoinput": map[string]any{"name": "Lunch", "when": "Tuesday", "where": "Cafe", "description": "team sync"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	require.Empty(t, resp.Errors)

	var created todo.Record
	require.NoError(t, json.Unmarshal(resp.Data["createTodo"], &created))
	assert.Equal(t, todo.Record{ID: "abc123", Name: "Lunch", When: "Tuesday", Where: "Cafe", Description: "team sync"}, created)

	rec = post(t, h, "k", map[string]any{"query": "query listTodos { listTodos { items { id name } } }"})
	resp = decode(t, rec)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"items":[{"id":"abc123","name":"Lunch"}]}`, string(resp.Data["listTodos"]))
}

func Test_Handler_Returns_GraphQL_Error_When_Fault_Injected(t *testing.T) {
	t.Parallel()

	api, err := fakeapi.New(fakeapi.Options{})
	require.NoError(t, err)

	api.Seed(todo.Record{ID: "a", Name: "seeded"})
	api.Fail(fakeapi.OpDelete, "delete disabled")

	h := api.Handler()
	query := map[string]any{
		"query":     `mutation deleteToDo($in: DeleteTodoInput!) { deleteTodo(input: $in) { id } }`,
		"variables": map[string]any{"in": map[string]any{"id": "a"}},
	}

	resp := decode(t, post(t, h, "", query))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "delete disabled", resp.Errors[0].Message)
	assert.Len(t, api.Todos(), 1)

	api.Recover(fakeapi.OpDelete)

	resp = decode(t, post(t, h, "", query))
	require.Empty(t, resp.Errors)
	assert.Empty(t, api.Todos())
	assert.Equal(t, 2, api.Calls(fakeapi.OpDelete))
}

func Test_Handler_Keeps_Unset_Fields_When_Update_Omits_Them(t *testing.T) {
	t.Parallel()

	api, err := fakeapi.New(fakeapi.Options{})
	require.NoError(t, err)

	api.Seed(todo.Record{ID: "a", Name: "old", When: "Mon", Where: "Home", Description: "d"})

	resp := decode(t, post(t, api.Handler(), "", map[string]any{
		"query": `mutation { updateTodo(input: {id: "a", where: "Cafe"}) { id where } }`,
	}))
	require.Empty(t, resp.Errors)

	assert.Equal(t, []todo.Record{{ID: "a", Name: "old", When: "Mon", Where: "Cafe", Description: "d"}}, api.Todos())
}
