package session

import "biogenie-go/internal/apperr"

// OwnerBackend 为登录用户提供按 owner 隔离的 Store。
type OwnerBackend interface {
	ForOwner(ownerID uint) Store
}

// GuestBackend 为访客上下文提供 Store。
type GuestBackend interface {
	ForGuest(guestKey string) Store
}

// Selector 按身份在两个后端之间做策略选择。
type Selector struct {
	durable OwnerBackend
	guest   GuestBackend
}

// NewSelector 创建一个新的 Selector。
func NewSelector(durable OwnerBackend, guest GuestBackend) *Selector {
	return &Selector{durable: durable, guest: guest}
}

// For 返回绑定到 id 的 Store。
func (s *Selector) For(id Identity) (Store, error) {
	if !id.IsGuest() {
		return s.durable.ForOwner(id.UserID), nil
	}
	if id.GuestKey == "" {
		return nil, apperr.InvalidInput("guest key is required for unauthenticated sessions")
	}
	return s.guest.ForGuest(id.GuestKey), nil
}
