package query

import (
	"encoding/json"
)

type kind string

const (
	kindBusinesses kind = "businesses"
	kindGroups     kind = "groups"
	kindGroupChats kind = "group_chats"
	kindChatDetail kind = "chat_detail"
)

// Key identifies a cached resource.
type Key struct {
	kind    kind
	groupID string
	chatID  string
}

// BusinessesKey is ["businesses"].
func BusinessesKey() Key {
	return Key{kind: kindBusinesses}
}

// GroupsKey is ["groups"].
func GroupsKey() Key {
	return Key{kind: kindGroups}
}

// GroupChatsKey is ["group", groupID, "chats"].
func GroupChatsKey(groupID string) Key {
	return Key{kind: kindGroupChats, groupID: groupID}
}

// ChatDetailKey is ["group", groupID, "chats", chatID].
func ChatDetailKey(groupID, chatID string) Key {
	return Key{kind: kindChatDetail, groupID: groupID, chatID: chatID}
}

// Parts returns the key as a tuple of strings.
func (k Key) Parts() []string {
	switch k.kind {
	case kindBusinesses:
		return []string{"businesses"}
	case kindGroups:
		return []string{"groups"}
	case kindGroupChats:
		return []string{"group", k.groupID, "chats"}
	case kindChatDetail:
		return []string{"group", k.groupID, "chats", k.chatID}
	}
	return nil
}

// String renders the key as a JSON array, which is unambiguous for any group and chat IDs.
func (k Key) String() string {
	b, _ := json.Marshal(k.Parts())
	return string(b)
}
