package domain

// ActivityAction 活动类型
type ActivityAction string

const (
	ActionForward ActivityAction = "forward"
	ActionReply   ActivityAction = "reply"
	ActionBlock   ActivityAction = "block"
	ActionBounced ActivityAction = "bounced"
)

// LogFlags 日志行上决定动作的三个标志位
type LogFlags struct {
	IsReply bool
	Bounced bool
	Blocked bool
}

// actionTable 标志位到动作的完整映射。
// 回复优先；非回复时退信优先于拦截。
var actionTable = map[LogFlags]ActivityAction{
	{IsReply: true, Bounced: false, Blocked: false}:  ActionReply,
	{IsReply: true, Bounced: false, Blocked: true}:   ActionReply,
	{IsReply: true, Bounced: true, Blocked: false}:   ActionReply,
	{IsReply: true, Bounced: true, Blocked: true}:    ActionReply,
	{IsReply: false, Bounced: true, Blocked: false}:  ActionBounced,
	{IsReply: false, Bounced: true, Blocked: true}:   ActionBounced,
	{IsReply: false, Bounced: false, Blocked: true}:  ActionBlock,
	{IsReply: false, Bounced: false, Blocked: false}: ActionForward,
}

// Classify 返回标志位组合对应的动作
func Classify(f LogFlags) ActivityAction {
	return actionTable[f]
}

// Activity 一条已确定方向的活动
type Activity struct {
	Timestamp int64          `json:"timestamp"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Action    ActivityAction `json:"action"`
}

// NewActivity 将日志行映射为活动。
// 回复方向：from 为别名地址，to 为通信方；其余方向相反。
func NewActivity(aliasEmail string, l *AliasLog) Activity {
	action := Classify(LogFlags{IsReply: l.IsReply, Bounced: l.Bounced, Blocked: l.Blocked})
	a := Activity{Timestamp: l.When.Unix(), Action: action}
	if action == ActionReply {
		a.From, a.To = aliasEmail, l.Correspondent()
	} else {
		a.From, a.To = l.Correspondent(), aliasEmail
	}
	return a
}
