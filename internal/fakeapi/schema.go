package fakeapi

import (
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/calvinalkan/todo-sync/internal/todo"
)

func recordMap(r todo.Record) map[string]any {
	return map[string]any{
		"id":          r.ID,
		"name":        r.Name,
		"when":        r.When,
		"where":       r.Where,
		"description": r.Description,
	}
}

func inputArg(p graphql.ResolveParams) (map[string]any, error) {
	in, ok := p.Args["input"].(map[string]any)
	if !ok {
		return nil, errors.New("input is required")
	}

	return in, nil
}

func str(in map[string]any, key string) string {
	s, _ := in[key].(string)

	return s
}

func (s *Server) buildSchema() (graphql.Schema, error) {
	todoType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Todo",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":        &graphql.Field{Type: graphql.String},
			"when":        &graphql.Field{Type: graphql.String},
			"where":       &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
		},
	})

	connectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TodoConnection",
		Fields: graphql.Fields{
			"items":     &graphql.Field{Type: graphql.NewList(todoType)},
			"nextToken": &graphql.Field{Type: graphql.String},
		},
	})

	inputFields := func(withID bool) graphql.InputObjectConfigFieldMap {
		fields := graphql.InputObjectConfigFieldMap{
			"name":        &graphql.InputObjectFieldConfig{Type: graphql.String},
			"when":        &graphql.InputObjectFieldConfig{Type: graphql.String},
			"where":       &graphql.InputObjectFieldConfig{Type: graphql.String},
			"description": &graphql.InputObjectFieldConfig{Type: graphql.String},
		}

		if withID {
			fields["id"] = &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)}
		}

		return fields
	}

	createInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   "CreateTodoInput",
		Fields: inputFields(false),
	})

	updateInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   "UpdateTodoInput",
		Fields: inputFields(true),
	})

	deleteInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "DeleteTodoInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"id": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"listTodos": &graphql.Field{
				Type: connectionType,
				Resolve: func(graphql.ResolveParams) (any, error) {
					records, err := s.list()
					if err != nil {
						return nil, err
					}

					items := make([]any, 0, len(records))
					for _, r := range records {
						items = append(items, recordMap(r))
					}

					return map[string]any{"items": items}, nil
				},
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createTodo": &graphql.Field{
				Type: todoType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(createInput)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					in, err := inputArg(p)
					if err != nil {
						return nil, err
					}

					r, err := s.create(todo.CreateInput{
						Name:        str(in, "name"),
						When:        str(in, "when"),
						Where:       str(in, "where"),
						Description: str(in, "description"),
					})
					if err != nil {
						return nil, err
					}

					return recordMap(r), nil
				},
			},
			"updateTodo": &graphql.Field{
				Type: todoType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(updateInput)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					in, err := inputArg(p)
					if err != nil {
						return nil, err
					}

					r, err := s.update(in)
					if err != nil {
						return nil, err
					}

					return recordMap(r), nil
				},
			},
			"deleteTodo": &graphql.Field{
				Type: todoType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(deleteInput)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					in, err := inputArg(p)
					if err != nil {
						return nil, err
					}

					r, err := s.delete(str(in, "id"))
					if err != nil {
						return nil, err
					}

					return recordMap(r), nil
				},
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("build schema: %w", err)
	}

	return schema, nil
}
