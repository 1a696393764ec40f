package bot

import (
	"fmt"
	"strings"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/model"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/internal/telegram"
)

const (
	textWelcome           = "Welcome! Share your link and receive anonymous messages.\n\nUse the buttons below to manage your inbox."
	textBanned            = "🚫 You have been banned from using this bot."
	textOwnerBanned       = "❌ The owner of this link is banned."
	textCompose           = "Write your anonymous message. It will be delivered without revealing who you are."
	textSent              = "✅ Your message was sent!"
	textNotSent           = "❌ The message could not be delivered."
	textEmpty             = "❌ The message is empty."
	textUnknownInput      = "▪️ Message not understood."
	textCancelled         = "❌ Sending cancelled."
	textReplyToReport     = "❌ Reply to a message to report it."
	textNotAnonymous      = "❌ This is not an anonymous message."
	textSenderUnknown     = "❌ The sender cannot be identified."
	textReportSent        = "✅ The report was sent to the review team."
	textReportNotNotified = "⚠️ The report was recorded but no admin could be notified."
	textNoMessages        = "📭 No messages yet.\n\nShare your link to start receiving messages!"
	textInternalError     = "❌ Something went wrong, please try again later."

	textNotAdmin       = "❌ You are not allowed to use this bot."
	textNotAllowed     = "❌ Not allowed."
	textNoPending      = "✅ No pending reports."
	textNoBanned       = "✅ No banned users."
	textAlreadyBanned  = "⚠️ Already banned."
	textNotBanned      = "⚠️ Not banned."
	textBadUserID      = "❌ user_id must be a number."
	textReportNotFound = "❌ Report not found."
	textAlreadyHandled = "ℹ️ This report was already handled."
	textUnbannedAll    = "✅ All users have been unbanned."
	textBanUsage       = "❌ usage: /ban <user_id> [reason]"
	textUnbanUsage     = "❌ usage: /unban <user_id>"

	inboxShown  = 10
	bannedShown = 15
	timeLayout  = "2006-01-02 15:04"
)

func mainKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(
		telegram.Row(telegram.Button("📥 My messages", cbMyMessages), telegram.Button("🔗 My link", cbMyLink)),
		telegram.Row(telegram.Button("📊 Message count", cbMessageCount), telegram.Button("🗑️ Delete all", cbDeleteAll)),
		telegram.Row(telegram.Button("🏆 My stats", cbMyStats), telegram.Button("ℹ️ Info", cbInfo)),
	)
}

func cancelKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(telegram.Row(telegram.Button("❌ Cancel", cbCancelSend)))
}

func adminKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(
		telegram.Row(telegram.Button("👥 Banned users", cbBannedList)),
		telegram.Row(telegram.Button("🔄 Unban everyone", cbUnbanAll)),
		telegram.Row(telegram.Button("📊 Stats", cbStats)),
	)
}

func reviewKeyboard(reportID int64) *telegram.InlineKeyboardMarkup {
	var row []telegram.InlineKeyboardButton
	for _, a := range messenger.ReportActions(reportID) {
		row = append(row, telegram.Button(telegram.ActionLabel(a.Verb), a.Data()))
	}
	return telegram.Keyboard(row)
}

// rating 称号档位映射为星级，最低档没有星
func rating(rank int) string {
	if rank <= 0 {
		return "no rating"
	}
	return strings.Repeat("⭐", rank)
}

func linkText(link string) string {
	return "✅ Your personal link is ready!\n\n🔗 Share it to receive anonymous messages:\n" + link
}

func statsText(st *service.UserStats) string {
	var b strings.Builder
	b.WriteString("📊 Your stats:\n\n")
	fmt.Fprintf(&b, "💌 Total messages: %d\n", st.MessageCount)
	fmt.Fprintf(&b, "🏆 Current title: %s\n", st.Tier)
	if st.MaxTier {
		fmt.Fprintf(&b, "📈 Next level: %s\n", st.NextTier)
	} else {
		fmt.Fprintf(&b, "📈 Next level: %s in %d messages\n", st.NextTier, st.Remaining)
	}
	fmt.Fprintf(&b, "⭐ Rating: %s\n", rating(st.Rank))
	fmt.Fprintf(&b, "🕒 Member since: %s", st.JoinedAt.Format(timeLayout))
	return b.String()
}

func inboxText(msgs []*model.Message, total int64) string {
	if len(msgs) == 0 {
		return textNoMessages
	}
	var b strings.Builder
	b.WriteString("📥 Your anonymous messages:\n\n")
	for i, m := range msgs {
		if i == inboxShown {
			break
		}
		fmt.Fprintf(&b, "%d. \"%s\"\n   ⏰ %s\n\n", i+1, m.Text, m.CreatedAt.Format(timeLayout))
	}
	if total > inboxShown {
		fmt.Fprintf(&b, "\n📊 Total messages: %d", total)
	}
	return b.String()
}

func reviewHelpText() string {
	return "🤖 Report review panel\n\nCommands:\n" +
		"/pending - pending reports\n" +
		"/ban <user_id> [reason] - ban a user\n" +
		"/unban <user_id> - lift a ban\n" +
		"/banned - banned users\n" +
		"/stats - system stats"
}

func pendingText(p service.PendingReport) string {
	reported := "unknown"
	if p.ReportedUserID != nil {
		reported = fmt.Sprint(*p.ReportedUserID)
	}
	return fmt.Sprintf("📄 Report #%d\n👤 Reported sender: %s\n🧑‍💻 Reporter: %d\n🕒 Date: %s\nText:\n%s",
		p.ID, reported, p.ReporterID, p.CreatedAt.Format(timeLayout), p.Text)
}

func bannedText(list []*model.BanRecord) string {
	var b strings.Builder
	b.WriteString("👥 Banned users:\n\n")
	for i, rec := range list {
		if i == bannedShown {
			break
		}
		name := rec.DisplayName
		if name == "" {
			name = "no name"
		}
		fmt.Fprintf(&b, "👤 User ID: %d\n📛 Name: %s\n📝 Reason: %s\n⏰ Date: %s\n────────────────────\n",
			rec.UserID, name, rec.Reason, rec.BannedAt.Format(timeLayout))
	}
	if len(list) > bannedShown {
		fmt.Fprintf(&b, "\n📊 ... and %d more", len(list)-bannedShown)
	}
	return b.String()
}

func systemStatsText(s *repository.SystemStats) string {
	var b strings.Builder
	b.WriteString("📊 System stats:\n\n")
	fmt.Fprintf(&b, "👥 Users: %d\n", s.Users)
	fmt.Fprintf(&b, "🔵 Active this week: %d\n", s.ActiveUsers)
	fmt.Fprintf(&b, "💌 Messages: %d\n", s.Messages)
	fmt.Fprintf(&b, "📨 Messages today: %d\n", s.MessagesToday)
	fmt.Fprintf(&b, "🚫 Banned: %d\n\n", s.Banned)
	b.WriteString("📋 Reports:\n")
	for _, st := range model.ReportStatuses {
		fmt.Fprintf(&b, "• %s: %d\n", st, s.Reports[st])
	}
	return b.String()
}

func outcomeText(outcome service.Outcome, reportID int64, rep *model.Report) string {
	reported := "?"
	if rep != nil && rep.ReportedUserID != nil {
		reported = fmt.Sprint(*rep.ReportedUserID)
	}
	switch outcome {
	case service.OutcomeBanned:
		return fmt.Sprintf("✅ User %s banned.\n📋 Report #%d handled.", reported, reportID)
	case service.OutcomeAlreadyBanned:
		return fmt.Sprintf("⚠️ User %s was already banned.\n✅ Report status updated.", reported)
	case service.OutcomeDismissed:
		return fmt.Sprintf("✅ Report #%d dismissed.", reportID)
	default:
		return textAlreadyHandled
	}
}
