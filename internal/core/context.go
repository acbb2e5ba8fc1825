package core

type ctxKey string

const (
	CtxKeyExecutionId ctxKey = ctxKey("executionId")
	CtxKeyWorkerId    ctxKey = ctxKey("workerId")
)
