package commands

const (
	welcomeTemplate = "👋 Welcome to the Stock Price Notification Bot!\n\n" +
		"I'll help you monitor stock prices of major tech companies. Here are my commands:\n\n" +
		"%s\n\n" +
		"You're currently subscribed to receive updates %s for major tech stocks."

	msgSubscribeUsage   = "Please provide a stock symbol. Example: /subscribe AAPL"
	msgUnsubscribeUsage = "Please provide a stock symbol. Example: /unsubscribe AAPL"
	msgInvalidSymbol    = "Invalid stock symbol: %s"
	msgSubscribed       = "Successfully subscribed to %s"
	msgAlreadySub       = "You're already subscribed to %s"
	msgUnsubscribed     = "Successfully unsubscribed from %s"
	msgNotSubscribed    = "You're not subscribed to %s"

	msgNoSubscriptions = "You're not subscribed to any stocks."
	msgNoDataAll       = "Could not fetch data for your stocks."
	msgNoData          = "Could not fetch data for %s"
	msgListHeader      = "Your subscribed stocks:\n\n"

	msgFrequencyUsage   = "Please provide frequency in hours. Example: /frequency 2"
	msgFrequencyNumber  = "Please provide a valid number of hours."
	msgFrequencyInteger = "Frequency must be an integer."
	msgFrequencyRange   = "Frequency must be between 1 and 24 hours."
	msgFrequencySet     = "Notification frequency set to %d hours."

	msgUpdateUsage   = "Please provide at least one stock symbol. Example: /updatestocks AAPL MSFT GOOGL"
	msgUpdateInvalid = "The following symbols are invalid: %s\nPlease provide valid stock symbols."
	msgUpdateDone    = "Default stocks list updated successfully.\nNew default stocks: %s"
)
