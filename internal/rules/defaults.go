package rules

import "github.com/mailspend/mailspend/internal/model"

// Default returns the built-in rule set. Keyword matching is case-insensitive
// substring matching; pattern fields are regular expressions compiled by their
// consumers. Tables mix English and Japanese because the mail they score does.
func Default() *Set {
	return &Set{
		Signal:  defaultSignalRules(),
		Extract: defaultExtractRules(),
		Roles:   defaultRoleRules(),
	}
}

func defaultSignalRules() SignalRules {
	return SignalRules{
		PersonalSubject: []string{
			`^(?:re|fwd?|fw)\s*[:：]`,
			`meeting`, `打ち合わせ`, `ミーティング`, `会議`,
			`invoice`, `見積`,
			`password`,
			`lunch`, `dinner`, `coffee`, `ランチ`, `飲み会`,
			`interview`, `面接`,
			`ご相談`, `お願いした`,
		},
		ServiceKeywords: []string{
			"maintenance", "メンテナンス", "scheduled downtime", "downtime",
			"障害", "復旧", "サービス停止",
			"password reset", "パスワード再設定", "パスワードリセット",
			"security alert", "セキュリティ通知", "不正アクセス",
			"verification code", "認証コード", "2段階認証",
			"invoice", "請求書", "ご請求",
			"payment failed", "決済に失敗", "お支払いに失敗",
			"build failed", "pipeline failed", "deploy completed",
			"terms of service", "利用規約", "privacy policy", "プライバシーポリシー",
			"account suspended", "アカウント停止", "system notification", "システム通知",
		},
		NewsletterKeywords: []string{
			"unsubscribe", "配信停止", "配信解除", "購読解除",
			"newsletter", "メールマガジン", "メルマガ",
			"campaign", "キャンペーン",
			"sale", "セール", "discount", "割引", "クーポン", "coupon", "限定",
			"special offer", "特別オファー", "お得",
			"new arrival", "新商品", "最新情報",
			"follow us", "今すぐチェック",
		},
		ESPDomains: []string{
			"mailchimp", "mandrillapp", "sendgrid", "mailgun",
			"constantcontact", "createsend", "campaignmonitor",
			"klaviyo", "braze", "exacttarget", "marketo", "hubspot",
			"amazonses", "sparkpostmail", "mail.rakuten",
		},
		NoReplyPatterns: []string{
			"no-reply", "noreply", "donotreply", "do-not-reply", "no_reply", "do_not_reply",
		},
		UnsubscribeMarkers: []string{
			"unsubscribe", "配信停止", "配信解除", "購読を解除", "opt out", "opt-out", "オプトアウト",
		},
		ServiceWeight:     25,
		ServiceCap:        50,
		NewsletterWeight:  20,
		NewsletterCap:     60,
		ESPWeight:         30,
		NoReplyWeight:     20,
		UnsubscribeWeight: 30,
		ManyLinksWeight:   20,
		LinkThreshold:     7,
	}
}

func defaultExtractRules() ExtractRules {
	return ExtractRules{
		StrongKeywords: []string{
			"order confirmed", "order confirmation", "your order has been received",
			"thank you for your order", "thank you for your purchase",
			"purchase confirmation", "payment received", "payment successful",
			"payment complete", "receipt for your order",
			"注文確認", "ご注文ありがとうございます", "注文を受け付けました",
			"ご注文内容", "決済完了", "決済が完了", "支払いが完了", "購入が完了",
		},
		MediumKeywords: []string{
			"receipt", "invoice", "order", "payment", "purchase",
			"shipped", "delivery", "tracking",
			"領収書", "請求書", "明細", "注文", "購入", "支払い", "発送", "お届け",
		},
		NegativeKeywords: []string{
			"unsubscribe", "配信停止", "配信解除",
			"sale", "セール", "discount", "割引", "クーポン", "coupon", "限定",
			"campaign", "キャンペーン", "special offer", "特別オファー",
			"newsletter", "メルマガ", "お得", "新商品",
		},
		Vendors: []VendorRule{
			{Name: "Amazon", Patterns: []string{"amazon"}},
			{Name: "Rakuten", Patterns: []string{"楽天", "rakuten"}},
			{Name: "Yahoo! Shopping", Patterns: []string{"yahoo"}},
			{Name: "Mercari", Patterns: []string{"メルカリ", "mercari"}},
			{Name: "Apple", Patterns: []string{"apple.com", "itunes", "アップル"}},
			{Name: "ZOZOTOWN", Patterns: []string{"zozo"}},
			{Name: "Yodobashi", Patterns: []string{"ヨドバシ", "yodobashi"}},
			{Name: "Bic Camera", Patterns: []string{"ビックカメラ", "biccamera"}},
			{Name: "Uniqlo", Patterns: []string{"ユニクロ", "uniqlo"}},
			{Name: "Netflix", Patterns: []string{"netflix"}},
			{Name: "Spotify", Patterns: []string{"spotify"}},
			{Name: "Steam", Patterns: []string{"steampowered"}},
			{Name: "Google", Patterns: []string{"google play", "google store"}},
			{Name: "DMM", Patterns: []string{"dmm.com"}},
			{Name: "Booking.com", Patterns: []string{"booking.com"}},
		},
		CommerceDomains: []string{
			"amazon.co.jp", "amazon.com", "rakuten.co.jp", "rakuten.com",
			"shopping.yahoo.co.jp", "store.yahoo.co.jp", "mercari.com", "mercari.jp",
			"apple.com", "zozo.jp", "yodobashi.com", "biccamera.com", "uniqlo.com",
			"netflix.com", "spotify.com", "steampowered.com", "play.google.com",
			"dmm.com", "booking.com", "shopify.com", "stripe.com", "paypal.com",
			"stores.jp", "base.ec",
		},
		AmountContexts: []string{
			"合計", "小計", "総額", "総計", "請求金額", "ご請求額", "支払金額",
			"お支払い金額", "決済金額", "金額", "代金",
			"grand total", "total", "subtotal", "amount due", "amount",
			"payment of", "charged",
		},
		OrderIDPatterns: []string{
			`(?i)(?:ご注文番号|注文番号|注文ID)\s*[:：#]?\s*([A-Za-z0-9][A-Za-z0-9\-]{2,30})`,
			`(?i)order\s*(?:number|no\.?|id)\s*[:：#]?\s*([A-Za-z0-9][A-Za-z0-9\-]{2,30})`,
			`(?i)order\s*#\s*([A-Za-z0-9\-]{3,30})`,
			`(?i)(?:confirmation|reference)\s*(?:number|no\.?|code)?\s*[:：#]\s*([A-Za-z0-9\-]{3,30})`,
			`#\s?([0-9]{5,20})\b`,
		},
		TrackingPatterns: []string{
			`(?i)(?:追跡番号|お問い合わせ番号|お問合せ番号|伝票番号|送り状番号)\s*[:：#]?\s*([A-Za-z0-9\-]{6,40})`,
			`(?i)tracking\s*(?:number|no\.?|id|code)?\s*[:：#]?\s*([A-Za-z0-9\-]{6,40})`,
			`\b(1Z[0-9A-Za-z]{16})\b`,
			`\b([A-Z]{2}[0-9]{9}JP)\b`,
		},
		StatusPatterns: []StatusPattern{
			{Status: model.StatusCancelled, Pattern: `(?i)(?:キャンセル|cancell?ed|cancellation|返金|refund)`},
			{Status: model.StatusDelivered, Pattern: `(?i)(?:配達完了|配達済み|お届けしました|delivered)`},
			{Status: model.StatusShipped, Pattern: `(?i)(?:発送|出荷|shipped|on its way|配送中)`},
			{Status: model.StatusConfirmed, Pattern: `(?i)(?:注文確認|ご注文|order confirm|confirmed|受け付けました|承りました)`},
		},
		PaymentPatterns: []PaymentPattern{
			{Method: "Credit Card", Pattern: `(?i)(?:クレジットカード|credit\s*card|visa|mastercard|american\s*express|amex|jcb)`},
			{Method: "PayPal", Pattern: `(?i)paypal`},
			{Method: "Apple Pay", Pattern: `(?i)apple\s*pay`},
			{Method: "Google Pay", Pattern: `(?i)google\s*pay`},
			{Method: "Bank Transfer", Pattern: `(?i)(?:銀行振込|bank\s*transfer|wire\s*transfer)`},
			{Method: "Convenience Store", Pattern: `(?i)(?:コンビニ払い|コンビニ決済)`},
			{Method: "Cash on Delivery", Pattern: `(?i)(?:代金引換|着払い|cash\s*on\s*delivery)`},
		},
		ItemPatterns: []string{
			`(?m)^\s*(?:商品名|品名)\s*[:：]\s*(.+?)\s*$`,
			`(?m)^\s*[・•*-]\s*(.{2,60}?)\s*[×xX]\s*([0-9]{1,3})\s*$`,
			`(?m)^\s*(.{2,60}?)\s*[×xX]\s*([0-9]{1,3})\s*[:：]?\s*[¥￥$€£]\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*$`,
		},
	}
}

func defaultRoleRules() RoleRules {
	return RoleRules{
		Cancellation: []string{
			"キャンセル", "cancel", "返金", "refund", "払い戻し", "取り消され", "取消",
		},
		Shipping: []string{
			"発送", "出荷", "shipped", "shipment", "配送", "配達",
			"delivered", "delivery", "追跡番号", "tracking number", "お届け予定",
		},
		Order: []string{
			"注文", "order", "購入", "purchase", "決済", "payment",
			"領収書", "receipt", "ご購入",
		},
	}
}
