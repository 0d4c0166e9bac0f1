package tools

import "context"

// threadIDKey is an unexported context key for zero-allocation type safety.
type threadIDKey struct{}

// ThreadIDFromContext retrieves the thread identity from context.
// Returns empty string if not set.
// Used by rag_search to scope retrieval to the current conversation.
func ThreadIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(threadIDKey{}).(string)
	return id
}

// ContextWithThreadID stores the thread identity in context. The engine
// injects it before dispatch; thread-scoped tools read it for isolation.
func ContextWithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDKey{}, threadID)
}
