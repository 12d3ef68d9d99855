package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type todo struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	IsCompleted bool      `json:"is_completed"`
	UserID      int64     `json:"user_id"`
	DateCreated time.Time `json:"date_created"`
	DateUpdated time.Time `json:"date_updated"`
}

type apiError struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "HTTP server address")
	mode := flag.String("mode", "list", "mode: create | list | get | update | delete | user")
	id := flag.Int64("id", 0, "todo id for get / update / delete")
	title := flag.String("title", "", "title for create / update")
	desc := flag.String("desc", "", "description for create / update")
	userID := flag.Int64("user", 0, "user id for create / update / user")
	done := flag.Bool("done", false, "completion flag for create / update")
	flag.Parse()

	// update は明示された flag だけ送る
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := &client{base: strings.TrimRight(*addr, "/"), http: &http.Client{}}

	switch *mode {
	case "create":
		if *title == "" || *userID == 0 {
			return errors.New("title and user are required for create")
		}
		body := map[string]any{"title": *title, "is_completed": *done, "user_id": *userID}
		if set["desc"] {
			body["description"] = *desc
		}
		var res todo
		if err := c.do(ctx, http.MethodPost, "/todos", body, &res); err != nil {
			return err
		}
		fmt.Printf("created: %s\n", format(res))

	case "list":
		var res []todo
		if err := c.do(ctx, http.MethodGet, "/todos", nil, &res); err != nil {
			return err
		}
		printList(res)

	case "user":
		if *userID == 0 {
			return errors.New("user is required for user")
		}
		var res []todo
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/todos/user/%d", *userID), nil, &res); err != nil {
			return err
		}
		printList(res)

	case "get":
		if err := requireID(*id); err != nil {
			return err
		}
		var res todo
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/todos/%d", *id), nil, &res); err != nil {
			return err
		}
		fmt.Println(format(res))

	case "update":
		if err := requireID(*id); err != nil {
			return err
		}
		body := map[string]any{}
		if set["title"] {
			body["title"] = *title
		}
		if set["desc"] {
			if *desc == "" {
				body["description"] = nil
			} else {
				body["description"] = *desc
			}
		}
		if set["done"] {
			body["is_completed"] = *done
		}
		if set["user"] {
			body["user_id"] = *userID
		}
		var res todo
		if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/todos/%d", *id), body, &res); err != nil {
			return err
		}
		fmt.Printf("updated: %s\n", format(res))

	case "delete":
		if err := requireID(*id); err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/todos/%d", *id), nil, nil); err != nil {
			return err
		}
		fmt.Printf("deleted: id=%d\n", *id)

	default:
		return fmt.Errorf("unknown mode: %s", *mode)
	}
	return nil
}

type client struct {
	base string
	http *http.Client
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := fmt.Sprintf("%s %s: %d %s (kind=%s", method, path, resp.StatusCode, e.Error, e.Kind)
		if e.Field != "" {
			msg += " field=" + e.Field
		}
		if e.Reason != "" {
			msg += " reason=" + e.Reason
		}
		return errors.New(msg + ")")
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func requireID(id int64) error {
	if id == 0 {
		return errors.New("id is required")
	}
	return nil
}

func format(t todo) string {
	desc := "<none>"
	if t.Description != nil {
		desc = *t.Description
	}
	return fmt.Sprintf("id=%d title=%s desc=%s done=%v user=%d updated=%s",
		t.ID, t.Title, desc, t.IsCompleted, t.UserID, t.DateUpdated.Format(time.RFC3339))
}

func printList(ts []todo) {
	if len(ts) == 0 {
		fmt.Println("no todos")
		return
	}
	fmt.Println("todos:")
	for _, t := range ts {
		fmt.Printf("- %s\n", format(t))
	}
}
