package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Errors []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Errors, "; ")
}

// GraphQL runs query and decodes the data member into out. Queries retry
// under the client policy; mutations are sent once.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	policy := c.policy
	if isMutation(query) {
		policy = singleAttempt
	}

	var resp graphQLResponse
	if err := c.doWith(ctx, policy, http.MethodPost, c.graphqlURL, graphQLRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		return &GraphQLError{Errors: messages}
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

func isMutation(query string) bool {
	return strings.HasPrefix(strings.TrimSpace(query), "mutation")
}
