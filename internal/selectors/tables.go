package selectors

const builtinVersion = "2026.02"

var reviewTabKeywords = []string{"리뷰", "후기", "상품평", "포토리뷰", "사용후기", "구매후기", "포토"}

var naverExclude = []string{
	"header", "nav", ".header", ".nav",
	`[class*="gnb"]`, `[class*="store_info"]`, `[class*="storeBanner"]`, `[class*="eventBanner"]`,
	`[class*="detailContent"]`, `[class*="DetailContent"]`, `[class*="productDetail"]`,
	".se-module", ".se-component", `[class*="description"]`, `[class*="detail_view"]`,
}

var genericExclude = []string{
	"header", "nav", "footer", ".header", ".nav", ".footer",
	`[class*="recommend"]`, `[class*="Recommend"]`, `[class*="banner"]`, `[class*="Banner"]`,
}

var genericReviewText = []string{
	".review-content", ".review-text", `[class*="review"] p`, ".review-body",
	".user-review", `[class*="reviewContent"]`, ".photo-review-text", ".review-description",
}

var naverReviewText = append([]string{
	".vhlVUsCtw3 .K0kwJOXP06", ".V5XROudBPi .K0kwJOXP06", ".XnpoHCCmiR .K0kwJOXP06",
}, genericReviewText...)

var genericTitle = []string{
	`[class*="product"][class*="name"]`,
	`[class*="product"][class*="title"]`,
	`[class*="ProductName"]`,
	`[class*="productName"]`,
	`h1[class*="product"]`,
	`h2[class*="product"]`,
	"#productTitle",
	".product-title",
	`meta[property="og:title"]`,
	`meta[name="twitter:title"]`,
	"h1",
	"title",
}

func builtinTables() []Table {
	return []Table{
		{
			Name:    NaverBrand,
			Version: builtinVersion,
			Title: []string{
				"h3.DCVBehA8ZB._copyable",
				".P2lBbUWPNi h3",
				`h3[class*="DCVBehA8ZB"]`,
				".vqznXAI2JL h3",
				`[class*="ProductName"] h3`,
				`[class*="productName"]`,
				`meta[property="og:title"]`,
			},
			Price: []string{
				"strong.Xu9MEKUuIo span.e1DMQNBPJ_",
				"del.VaZJPclpdJ span.e1DMQNBPJ_",
				`[class*="price"] strong`,
			},
			Gallery: []string{
				"img.fxmqPhYp6y",
				`[class*="ProductImage"] img`,
				`[class*="productImage"] img`,
				`[class*="ProductThumb"] img`,
				`[class*="productThumb"] img`,
				`[class*="ImageSlide"] img`,
				`[class*="imageSlide"] img`,
				`[class*="GallerySlide"] img`,
				".K4l1t0ryUq img",
				".bd_3SCnU img",
				".MLx6OjiZJZ img",
				".swiper-slide img",
			},
			Review: []string{
				".YvTyxRfXAK img",
				"img.K0hV0afCJe",
				"img.M6TOdPtHmb",
				".V5XROudBPi img",
				".NXwbdiybnm img",
				`[class*="ReviewItem"] img`,
				`[class*="reviewPhoto"] img`,
				`[class*="review"] img[src*="shop-phinf"]`,
				`[class*="review"] img[src*="pstatic"]`,
			},
			ProductArea: []string{
				`[class*="ProductInfo"]`,
				`[class*="productInfo"]`,
				`[class*="product_info"]`,
			},
			Exclude:           naverExclude,
			SpecRows:          []string{".BQJHG3qqZ4 table.RCLS1uAn0a tr", "table tr"},
			ReviewText:        naverReviewText,
			ReviewTabKeywords: reviewTabKeywords,
		},
		{
			Name:    SmartStore,
			Version: builtinVersion,
			Title: []string{
				"h3.DCVBehA8ZB._copyable",
				".P2lBbUWPNi h3",
				`h3[class*="DCVBehA8ZB"]`,
				"._22kNQuEXmb",
				`[class*="ProductName"]`,
				`meta[property="og:title"]`,
			},
			Price: []string{
				"strong.Xu9MEKUuIo span.e1DMQNBPJ_",
				"del.VaZJPclpdJ span.e1DMQNBPJ_",
				"._1LY7DqCnwR",
			},
			Gallery: []string{
				"img.fxmqPhYp6y",
				".CDVK7KtpZn img",
				".UMv5kEGtch img",
				`[class*="ProductImage"] img`,
				".swiper-slide img",
			},
			Review: []string{
				".YvTyxRfXAK img",
				"img.K0hV0afCJe",
				".review_photo img",
				`[class*="review"] img[src*="pstatic"]`,
			},
			ProductArea: []string{
				`[class*="ProductInfo"]`,
				`[class*="product_info"]`,
			},
			Exclude:           naverExclude,
			SpecRows:          []string{".BQJHG3qqZ4 table.RCLS1uAn0a tr", "table tr"},
			ReviewText:        naverReviewText,
			ReviewTabKeywords: reviewTabKeywords,
		},
		{
			Name:    Coupang,
			Version: builtinVersion,
			Title: []string{
				".prod-buy-header__title",
				"h1.prod-buy-header__title",
				`h1[class*="product-title"]`,
				`meta[property="og:title"]`,
				"h1",
			},
			Price: []string{
				".total-price strong",
				".prod-sale-price .total-price",
				`[class*="final-price"]`,
			},
			Gallery: []string{
				".prod-image img",
				".prod-image__detail img",
				".prod-image__item img",
				".prod-image-container img",
				`[class*="prod-image"] img`,
				`img[alt="Product image"]`,
			},
			Review: []string{
				".sdp-review__article__photo img",
				".sdp-review__article__image img",
				`[class*="review"] img[src*="coupang"]`,
			},
			ProductArea: []string{
				".prod-atf",
				`[class*="prod-atf"]`,
			},
			Exclude:           append([]string{"#productDetail", ".product-description-container", ".vendor-item-description-container"}, genericExclude...),
			SpecRows:          []string{".prod-description table tr", "table tr"},
			ReviewText:        []string{".sdp-review__article__list__review__content", ".js_reviewArticleContent"},
			ReviewTabKeywords: []string{"상품평", "리뷰", "후기"},
		},
		{
			Name:    Generic,
			Version: builtinVersion,
			Title:   genericTitle,
			Price: []string{
				`[itemprop="price"]`,
				`[class*="sale-price"]`,
				`[class*="salePrice"]`,
				`[class*="price"] strong`,
			},
			Gallery: []string{
				`img[itemprop="image"]`,
				".product_img img",
				".product-image img",
				".prd_img img",
				".main_img img",
				".product_thumb img",
				".slick-slide img",
				".swiper-slide img",
			},
			Review: []string{
				".review_photo img",
				".photo_review img",
				".review-photo img",
				".c_review_photo img",
				`[class*="ReviewPhoto"] img`,
			},
			ProductArea: []string{
				`[class*="product_detail"]`,
				`[class*="productView"]`,
				`[class*="goods_view"]`,
				`[class*="item_photo"]`,
			},
			Exclude:           genericExclude,
			SpecRows:          []string{"table tr"},
			ReviewText:        genericReviewText,
			ReviewTabKeywords: reviewTabKeywords,
		},
	}
}
