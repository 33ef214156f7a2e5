package models

import "time"

// User represents an account within the SkillSwap platform.
type User struct {
	ID                    string         `json:"id"`
	Username              string         `json:"username"`
	Email                 string         `json:"email"`
	Password              string         `json:"-"`
	Skills                []string       `json:"skills"`
	WantedSkills          []string       `json:"wantedSkills"`
	VerificationCode      string         `json:"-"`
	VerificationExpiresAt time.Time      `json:"-"`
	Verified              bool           `json:"isVerified"`
	WatchedVideos         int64          `json:"watchedVideos"`
	ProfilePic            string         `json:"profilePic"`
	Progress              WeeklyProgress `json:"progress"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// PublicProfile is the subset of a user that other members may see.
type PublicProfile struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Skills        []string `json:"skills"`
	WantedSkills  []string `json:"wantedSkills"`
	WatchedVideos int64    `json:"watchedVideos"`
	ProfilePic    string   `json:"profilePic"`
}

// Public strips private fields from the user.
func (u User) Public() PublicProfile {
	return PublicProfile{
		ID:            u.ID,
		Username:      u.Username,
		Skills:        u.Skills,
		WantedSkills:  u.WantedSkills,
		WatchedVideos: u.WatchedVideos,
		ProfilePic:    u.ProfilePic,
	}
}

// WeeklyProgress holds one completion percentage per weekday, Monday first.
type WeeklyProgress [7]int

// Video is an instructional video uploaded by a member.
type Video struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	VideoURL     string    `json:"videoUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Skills       []string  `json:"skills"`
	Views        int64     `json:"views"`
	Likes        int64     `json:"likes"`
	Duration     float64   `json:"duration"`
	ETag         string    `json:"etag"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Comment is a remark left on a video.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Likes     int64     `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
}

// MeetingStatus tracks where a meeting request is in its handshake.
type MeetingStatus string

const (
	MeetingPending  MeetingStatus = "pending"
	MeetingAccepted MeetingStatus = "accepted"
	MeetingRejected MeetingStatus = "rejected"
	MeetingExpired  MeetingStatus = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingAccepted || s == MeetingRejected || s == MeetingExpired
}

// Message is a meeting request sent from one member to a video owner.
type Message struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"userId"`
	OwnerID     string        `json:"ownerId"`
	Text        string        `json:"text"`
	RoomID      string        `json:"roomId"`
	Link        string        `json:"link"`
	Status      MeetingStatus `json:"status"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// IsAccepted returns nil while the request is pending, otherwise whether it was accepted.
func (m Message) IsAccepted() *bool {
	if m.Status == MeetingPending {
		return nil
	}
	accepted := m.Status == MeetingAccepted
	return &accepted
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
