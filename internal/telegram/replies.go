package telegram

// Reply texts and button payloads for the login handshake. Each
// user-facing error is specific enough that the user knows whether to
// restart from the website or simply continue in the chat.
const (
	loginCommand = "start"

	callbackAcceptPolicy = "policy_accept"
	callbackCancelPolicy = "policy_cancel"

	msgWelcome = "Hi! To sign in to Rentora, open the login page on the website and follow the link it shows you."

	msgFallback = "I only handle website sign-in. Open the login page on the website to get started."

	msgInvalidLink = "This sign-in link is invalid or has expired. Please start again from the website."

	msgAlreadyConfirmed = "This sign-in is already confirmed. You can return to the website."

	msgSharePhone = "Almost there! Tap the button below to share your phone number. Typed numbers are not accepted."

	msgNoActiveSession = "I couldn't find an active sign-in for you. Please start again from the website."

	msgConsentPrompt = "Last step: do you accept the Rentora terms of service and privacy policy?"

	msgCancelled = "Sign-in cancelled. If you change your mind, just start again from the website."

	msgSessionExpired = "Your sign-in session has expired. Please start again from the website."

	msgConfirmed = "You're all set! Tap the button below to return to the website and finish signing in."

	btnSharePhone   = "Share my phone number"
	btnAcceptPolicy = "I accept"
	btnCancel       = "Cancel"
	btnReturnToSite = "Return to Rentora"
)
