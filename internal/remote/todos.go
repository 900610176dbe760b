package remote

import (
	"context"
	"errors"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"

	"github.com/calvinalkan/todo-sync/internal/todo"
)

// Operation documents. Field selections follow the service contract.
const (
	listTodosQuery = `query listTodos {
  listTodos {
    items {
      description
      id
      name
      when
      where
    }
  }
}`

	createTodoMutation = `mutation createTodo($createtodoinput: CreateTodoInput!) {
  createTodo(input: $createtodoinput) {
    where
    when
    name
    id
    description
  }
}`

	updateTodoMutation = `mutation updateToDo($updatetodoinput: UpdateTodoInput!) {
  updateTodo(input: $updatetodoinput) {
    id
    description
    name
    when
    where
  }
}`

	deleteTodoMutation = `mutation deleteToDo($deletetodoinput: DeleteTodoInput!) {
  deleteTodo(input: $deletetodoinput) {
    id
  }
}`
)

type deleteInput struct {
	ID string `json:"id"`
}

// ListTodos returns the remote list in the order the service returns it.
func (c *Client) ListTodos(ctx context.Context) ([]todo.Record, error) {
	var resp struct {
		ListTodos *struct {
			Items []todo.Record `json:"items"`
		} `json:"listTodos"`
	}

	err := c.run(ctx, "listTodos", graphql.NewRequest(listTodosQuery), &resp)
	if err != nil {
		return nil, err
	}

	if resp.ListTodos == nil || resp.ListTodos.Items == nil {
		return []todo.Record{}, nil
	}

	return resp.ListTodos.Items, nil
}

// CreateTodo creates a record and returns it with its assigned id.
func (c *Client) CreateTodo(ctx context.Context, in todo.CreateInput) (todo.Record, error) {
	req := graphql.NewRequest(createTodoMutation)
	req.Var("createtodoinput", in)

	var resp struct {
		CreateTodo *todo.Record `json:"createTodo"`
	}

	err := c.run(ctx, "createTodo", req, &resp)
	if err != nil {
		return todo.Record{}, err
	}

	if resp.CreateTodo == nil || resp.CreateTodo.ID == "" {
		return todo.Record{}, &Error{Op: "createTodo", Err: errors.New("response has no id")}
	}

	c.log.Debug("remote created", zap.String("id", resp.CreateTodo.ID))
	c.refetch(ctx)

	return *resp.CreateTodo, nil
}

// UpdateTodo replaces every field of the record with id in.ID.
func (c *Client) UpdateTodo(ctx context.Context, in todo.UpdateInput) (todo.Record, error) {
	req := graphql.NewRequest(updateTodoMutation)
	req.Var("updatetodoinput", in)

	var resp struct {
		UpdateTodo *todo.Record `json:"updateTodo"`
	}

	err := c.run(ctx, "updateTodo", req, &resp)
	if err != nil {
		return todo.Record{}, err
	}

	if resp.UpdateTodo == nil {
		return todo.Record{}, &Error{Op: "updateTodo", Err: errors.New("empty response")}
	}

	c.log.Debug("remote updated", zap.String("id", in.ID))
	c.refetch(ctx)

	return *resp.UpdateTodo, nil
}

// DeleteTodo deletes the record with id and returns the deleted id.
func (c *Client) DeleteTodo(ctx context.Context, id string) (string, error) {
	req := graphql.NewRequest(deleteTodoMutation)
	req.Var("deletetodoinput", deleteInput{ID: id})

	var resp struct {
		DeleteTodo *deleteInput `json:"deleteTodo"`
	}

	err := c.run(ctx, "deleteTodo", req, &resp)
	if err != nil {
		return "", err
	}

	if resp.DeleteTodo == nil {
		return "", &Error{Op: "deleteTodo", Err: errors.New("empty response")}
	}

	c.log.Debug("remote deleted", zap.String("id", resp.DeleteTodo.ID))
	c.refetch(ctx)

	return resp.DeleteTodo.ID, nil
}
