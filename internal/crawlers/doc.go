// Package crawlers 提供候选发现和页面获取功能
//
// # 概述
//
// crawlers包负责采集流水线的前两步:从权威站点的分类页发现候选文章URL,
// 再按站点策略获取文章页面。支持HTTP(Colly)和无头浏览器(go-rod)两种获取方式,
// 以及先HTTP后浏览器的自动回退。
//
// # 核心组件
//
// ## Discoverer
//
// 遍历站点的category_paths,获取分类页并提取<a href>链接。
// 链接经过规范化、站点allow/deny正则、全局排除规则和robots.txt过滤后
// 按发现顺序进入CandidateQueue。分类页获取失败只记录日志,不影响其他分类页。
//
//	d := NewDiscoverer(fetchers, NewRobotsChecker(nil, ""))
//	candidates := d.Discover(ctx, sources)
//
// ## Fetcher
//
// 三种实现共用Fetcher接口,所有错误都包装为*FetchError:
//   - HTTPFetcher: Colly请求,支持gzip/deflate/br解压和指数退避重试
//   - BrowserFetcher: 隐身上下文 + stealth页面,拦截图片/媒体/字体请求,
//     浏览器崩溃后自动重启(最多max_restarts次)
//   - AutoFetcher: 先用HTTP,NeedsBrowser判定为反爬或SPA页面时改用浏览器
//
//	fetchers := NewFetcherSet(fetchCfg, browserCfg, headerManager)
//	defer fetchers.Close()
//	res, err := fetchers.ForStrategy(src.Strategy).Fetch(ctx, Request{URL: u, Language: src.Language})
//
// ## TabPool 和 ResourceMonitor
//
// TabPool限制同时打开的标签页数量。打开新标签页前通过ResourceMonitor
// 检查系统可用内存,低于min_free_memory_mb时等待其他标签页释放。
//
// # 重试策略
//
// RetryPolicy对5xx、408、429和瞬时网络错误重试,其余4xx和取消立即返回。
// 第n次重试前等待 InitialDelay * Multiplier^(n-1),不超过MaxDelay。
package crawlers
