package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domain_todo "github.com/hijjiri/todo-service/internal/domain/todo"
	todo_usecase "github.com/hijjiri/todo-service/internal/usecase/todo"
)

// TodoHandler は HTTP リクエストを Usecase / Command / Query に渡す。
// 書き込みの作成系は CommandHandler、ユーザー単位の一覧は QueryHandler を通す。
type TodoHandler struct {
	uc       todo_usecase.Usecase
	commands *todo_usecase.CommandHandler
	queries  *todo_usecase.QueryHandler
	logger   *zap.Logger
}

func NewTodoHandler(uc todo_usecase.Usecase, logger *zap.Logger) *TodoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TodoHandler{
		uc:       uc,
		commands: todo_usecase.NewCommandHandler(uc),
		queries:  todo_usecase.NewQueryHandler(uc),
		logger:   logger,
	}
}

func (h *TodoHandler) register(r gin.IRouter) {
	r.POST("/todos", h.create)
	r.GET("/todos", h.list)
	r.GET("/todos/:id", h.get)
	r.PUT("/todos/:id", h.update)
	r.DELETE("/todos/:id", h.delete)
	r.GET("/todos/user/:user_id", h.listByUser)
	r.GET("/users/:user_id/todos", h.listByUser)
}

// POST /todos
func (h *TodoHandler) create(c *gin.Context) {
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, h.logger, err)
		return
	}

	t, err := h.commands.HandleCreate(c.Request.Context(), req.command())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(t))
}

// GET /todos
func (h *TodoHandler) list(c *gin.Context) {
	ts, err := h.uc.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(ts))
}

// GET /todos/:id
func (h *TodoHandler) get(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	t, err := h.uc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(t))
}

// PUT /todos/:id
func (h *TodoHandler) update(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req updateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, h.logger, err)
		return
	}
	p, err := req.patch()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	t, err := h.uc.Update(c.Request.Context(), id, p)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(t))
}

// DELETE /todos/:id
func (h *TodoHandler) delete(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.uc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /todos/user/:user_id と GET /users/:user_id/todos
func (h *TodoHandler) listByUser(c *gin.Context) {
	userID, ok := h.pathID(c, "user_id")
	if !ok {
		return
	}

	ts, err := h.queries.HandleGetByUser(c.Request.Context(), todo_usecase.GetTodosByUserQuery{UserID: userID})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(ts))
}

// pathID は数値でなければ 400 を返して false。
func (h *TodoHandler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		writeBadRequest(c, h.logger, &domain_todo.ValidationError{Field: name, Reason: "must be an integer"})
		return 0, false
	}
	return id, true
}
