package transform

// Categories emitted by the enricher. The names are part of the
// enriched-records wire format.
const (
	Unknown = "Unknown"

	Ransomware   = "Ransomware"
	Malware      = "Malware"
	Ddos         = "Ddos"
	Botnet       = "Botnet"
	Phishing     = "Phishing"
	Trojan       = "Trojan"
	Spyware      = "Spyware"
	BruteForce   = "BruteForce"
	SQLInjection = "SQLInjection"

	VectorEmail          = "Email"
	VectorWebApplication = "WebApplication"
	VectorNetwork        = "Network"
	VectorCloudService   = "CloudService"
	VectorSupplyChain    = "SupplyChain"

	TargetWebApp         = "WebApp"
	TargetInfrastructure = "Infrastructure"
	TargetAPIAbuse       = "ApiAbuse"
	TargetIotDevices     = "IotDevices"
	TargetUserFocused    = "UserFocused"
	TargetEmailAttack    = "EmailAttack"

	Hot      = "Hot"
	Cold     = "Cold"
	Critical = "Critical"
	Medium   = "Medium"
	Low      = "Low"
)

type keyword struct {
	term     string
	category string
}

// Tables are ordered: classification results list categories in the order
// their first keyword appears here.

var attackTypeKeywords = []keyword{
	{"ransom", Ransomware},
	{"ransomware", Ransomware},
	{"locker", Ransomware},
	{"cryptolocker", Ransomware},
	{"encryptor", Ransomware},
	{"crypto-malware", Ransomware},

	{"malware", Malware},
	{"virus", Malware},
	{"worm", Malware},
	{"adware", Malware},
	{"rootkit", Malware},
	{"keylogger", Malware},

	{"ddos", Ddos},
	{"dos", Ddos},
	{"denial of service", Ddos},
	{"distributed denial of service", Ddos},
	{"flood attack", Ddos},
	{"syn flood", Ddos},
	{"amplification attack", Ddos},

	{"botnet", Botnet},
	{"bot network", Botnet},
	{"zombie network", Botnet},
	{"c&c", Botnet},
	{"command and control", Botnet},

	{"phish", Phishing},
	{"phishing", Phishing},
	{"spearphish", Phishing},
	{"spear-phishing", Phishing},
	{"whaling", Phishing},
	{"credential harvesting", Phishing},
	{"email scam", Phishing},
	{"smishing", Phishing},
	{"vishing", Phishing},

	{"trojan", Trojan},
	{"trojan horse", Trojan},
	{"dropper", Trojan},
	{"backdoor", Trojan},
	{"infostealer", Trojan},

	{"spyware", Spyware},
	{"snoopware", Spyware},
	{"tracking software", Spyware},
	{"monitoring tool", Spyware},

	{"brute force", BruteForce},
	{"bruteforce", BruteForce},
	{"credential stuffing", BruteForce},
	{"password cracking", BruteForce},
	{"dictionary attack", BruteForce},

	{"sql injection", SQLInjection},
	{"sqli", SQLInjection},
	{"injection attack", SQLInjection},
	{"database injection", SQLInjection},
	{"blind sql", SQLInjection},
	{"error-based injection", SQLInjection},
	{"union-based injection", SQLInjection},
}

var attackVectorKeywords = []keyword{
	{"email", VectorEmail},
	{"phishing", VectorEmail},
	{"spearphish", VectorEmail},
	{"spoofing", VectorEmail},

	{"web", VectorWebApplication},
	{"xss", VectorWebApplication},
	{"cross-site scripting", VectorWebApplication},
	{"sql injection", VectorWebApplication},
	{"sqli", VectorWebApplication},
	{"csrf", VectorWebApplication},
	{"directory traversal", VectorWebApplication},

	{"network", VectorNetwork},
	{"ddos", VectorNetwork},
	{"denial of service", VectorNetwork},
	{"port scan", VectorNetwork},
	{"mitm", VectorNetwork},
	{"man in the middle", VectorNetwork},

	{"cloud", VectorCloudService},
	{"aws", VectorCloudService},
	{"gcp", VectorCloudService},
	{"azure", VectorCloudService},
	{"bucket", VectorCloudService},
	{"s3", VectorCloudService},
	{"misconfig", VectorCloudService},
	{"storage exposure", VectorCloudService},

	{"supply chain", VectorSupplyChain},
	{"dependency confusion", VectorSupplyChain},
	{"software supply chain", VectorSupplyChain},
	{"package hijack", VectorSupplyChain},
	{"vendor compromise", VectorSupplyChain},
}

var targetKeywords = []keyword{
	{"webapp", TargetWebApp},
	{"web app", TargetWebApp},
	{"website", TargetWebApp},
	{"web application", TargetWebApp},
	{"web portal", TargetWebApp},
	{"online service", TargetWebApp},
	{"web service", TargetWebApp},

	{"infrastructure", TargetInfrastructure},
	{"server", TargetInfrastructure},
	{"servers", TargetInfrastructure},
	{"datacenter", TargetInfrastructure},
	{"data center", TargetInfrastructure},
	{"network infra", TargetInfrastructure},
	{"cloud infrastructure", TargetInfrastructure},
	{"system", TargetInfrastructure},
	{"backend", TargetInfrastructure},

	{"api abuse", TargetAPIAbuse},
	{"api exploitation", TargetAPIAbuse},
	{"api attack", TargetAPIAbuse},
	{"api misuse", TargetAPIAbuse},
	{"rest api", TargetAPIAbuse},
	{"graphql api", TargetAPIAbuse},
	{"api endpoint", TargetAPIAbuse},

	{"iot", TargetIotDevices},
	{"device", TargetIotDevices},
	{"smart devices", TargetIotDevices},
	{"smart home", TargetIotDevices},
	{"embedded systems", TargetIotDevices},
	{"industrial control systems", TargetIotDevices},
	{"ics", TargetIotDevices},
	{"plc", TargetIotDevices},
	{"smart tv", TargetIotDevices},
	{"iot network", TargetIotDevices},

	{"user", TargetUserFocused},
	{"users", TargetUserFocused},
	{"human", TargetUserFocused},
	{"human target", TargetUserFocused},
	{"social engineering", TargetUserFocused},
	{"account takeover", TargetUserFocused},
	{"identity theft", TargetUserFocused},
	{"credential theft", TargetUserFocused},
	{"login brute force", TargetUserFocused},
	{"phishing scam", TargetUserFocused},

	{"email", TargetEmailAttack},
	{"email attack", TargetEmailAttack},
	{"email phishing", TargetEmailAttack},
	{"email spoofing", TargetEmailAttack},
	{"spam email", TargetEmailAttack},
	{"malicious email", TargetEmailAttack},
	{"email fraud", TargetEmailAttack},
	{"spearphishing", TargetEmailAttack},
	{"mail scam", TargetEmailAttack},
	{"mail fraud", TargetEmailAttack},
}

// Only severity keywords influence urgency; hot/cold is derived from indicator activity.
var severityKeywords = []keyword{
	{"critical", Critical},
	{"high", Critical},
	{"severe", Critical},
	{"urgent", Critical},
	{"emergency", Critical},

	{"medium", Medium},
	{"moderate", Medium},
	{"average", Medium},
	{"balanced", Medium},

	{"low", Low},
	{"minor", Low},
	{"negligible", Low},
	{"low priority", Low},
	{"minimal", Low},
}

var severityRank = map[string]int{Low: 0, Medium: 1, Critical: 2}
