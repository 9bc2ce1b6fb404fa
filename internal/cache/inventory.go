package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix        = "user:%d"
	PostKeyPrefix        = "post:%d"
	FeedKeyPrefix        = "feed:%s:p%d:l%d"
	BalanceKeyPrefix     = "balance:%d"
	UnreadCountKeyPrefix = "notifications:%d:unread"
	ChatKeyPrefix        = "chat:%d"
)

const (
	UserTTL        = 5 * time.Minute
	PostTTL        = 30 * time.Minute
	FeedTTL        = 1 * time.Minute
	BalanceTTL     = 30 * time.Second
	UnreadCountTTL = 1 * time.Minute
	ChatTTL        = 10 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func FeedKey(category string, page, limit int) string {
	if category == "" {
		category = "all"
	}
	return fmt.Sprintf(FeedKeyPrefix, category, page, limit)
}

func BalanceKey(userID uint) string {
	return fmt.Sprintf(BalanceKeyPrefix, userID)
}

func UnreadCountKey(userID uint) string {
	return fmt.Sprintf(UnreadCountKeyPrefix, userID)
}

func ChatKey(chatID uint) string {
	return fmt.Sprintf(ChatKeyPrefix, chatID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
	Invalidate(ctx, BalanceKey(userID))
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}

func InvalidateUnreadCount(ctx context.Context, userID uint) {
	Invalidate(ctx, UnreadCountKey(userID))
}

func InvalidateChat(ctx context.Context, chatID uint) {
	Invalidate(ctx, ChatKey(chatID))
}
