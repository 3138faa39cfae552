// Package session carries per-request identity through context.
package session

import "context"

type contextKey string

const (
	keyTenantID   contextKey = "concierge_tenant_id"
	keyTenantSlug contextKey = "concierge_tenant_slug"
	keyUserID     contextKey = "concierge_user_id"
	keyUserType   contextKey = "concierge_user_type"
	keyRole       contextKey = "concierge_role"
	keyEmail      contextKey = "concierge_email"
	keyChatID     contextKey = "concierge_chat_id"
)

// User types recognized by entitlement checks.
const (
	UserTypeGuest   = "guest"
	UserTypeRegular = "regular"
)

func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyTenantID, id)
}

func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(keyTenantID).(string); ok {
		return v
	}
	return ""
}

func WithTenantSlug(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, keyTenantSlug, slug)
}

func GetTenantSlug(ctx context.Context) string {
	if v, ok := ctx.Value(keyTenantSlug).(string); ok {
		return v
	}
	return ""
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(keyUserID).(string); ok {
		return v
	}
	return ""
}

func WithUserType(ctx context.Context, userType string) context.Context {
	return context.WithValue(ctx, keyUserType, userType)
}

func GetUserType(ctx context.Context) string {
	if v, ok := ctx.Value(keyUserType).(string); ok {
		return v
	}
	return ""
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyRole, role)
}

func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(keyRole).(string); ok {
		return v
	}
	return ""
}

func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, keyEmail, email)
}

func GetEmail(ctx context.Context) string {
	if v, ok := ctx.Value(keyEmail).(string); ok {
		return v
	}
	return ""
}

func WithChatID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyChatID, id)
}

func GetChatID(ctx context.Context) string {
	if v, ok := ctx.Value(keyChatID).(string); ok {
		return v
	}
	return ""
}
