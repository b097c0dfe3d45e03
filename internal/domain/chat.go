package domain

// Role 消息角色
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message 对话消息
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
