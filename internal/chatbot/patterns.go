package chatbot

var defaultGreetingPatterns = []string{
	// Basic
	"hello", "hi", "hey", "greetings", "howdy", "yo", "hiya",
	// Time of day
	"good morning", "good afternoon", "good evening", "good day",
	// Casual
	"what's up", "sup", "how's it going", "how are you",
	// Welcome back
	"im back", "i'm back", "back again",
	// Formal
	"pleased to meet you", "nice to meet you", "pleasure to meet you",
	// Other
	"hi there", "hello there", "heya", "aloha", "bonjour", "hola",
}

var defaultQuestionProbes = []string{
	"how are you",
	"how're you",
	"how you doing",
	"how do you do",
	"what's new",
	"what's going on",
}

var defaultResponses = ResponsePool{
	Friendly: []string{
		"Hello! How can I help you today?",
		"Hi there! What can I do for you?",
		"Hey! Great to see you. What's on your mind?",
		"Greetings! How may I assist you?",
		"Hello! I'm here to help. What do you need?",
	},
	Casual: []string{
		"Hey there! Ready to help with whatever you need!",
		"Hi! Always good to chat. What's up?",
		"Hello! Looking forward to our conversation!",
	},
	Welcoming: []string{
		"Welcome! How can I make your day better?",
		"Great to see you! What shall we work on?",
		"Hello! I'm excited to help you today!",
	},
	Professional: []string{
		"Greetings! How may I be of assistance today?",
		"Hello! I'm at your service. What can I help you with?",
		"Hi there! Ready to tackle any questions you might have!",
	},
}

// Time-of-day greetings, chosen by the hour of the reply.
const (
	MorningGreeting   = "Good morning! How can I help you today?"
	AfternoonGreeting = "Good afternoon! What can I do for you?"
	EveningGreeting   = "Good evening! How may I assist you?"
	LateHourGreeting  = "Hello! How can I help you at this hour?"
)

// Fixed user-facing fallbacks.
const (
	LookupFallback   = "I couldn't find a specific answer to your query. Try rephrasing or asking something else."
	InternalFallback = "I encountered an error processing your request. Please try again."
)
